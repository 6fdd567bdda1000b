package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/djeraseit/parity/pkg/account"
	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/rpc"
	"github.com/djeraseit/parity/pkg/sign"
)

const remoteCallTimeout = 30 * time.Second

// secretReader reads one line without echoing it.
type secretReader func() ([]byte, error)

func terminalSecretReader() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	secret, err := term.ReadPassword(fd)
	fmt.Println()
	return secret, err
}

func runListAccountsCli(logger log.Logger) {
	store, provider, err := openAccountStore(logger)
	if err != nil {
		logger.Fatal("failed to open account store", "error", err)
	}

	if err := printAccounts(os.Stdout, store, provider); err != nil {
		logger.Fatal("failed to list accounts", "error", err)
	}
}

// offlineNotice is printed after the account commands that write to the
// database directly.
const offlineNotice = "A running keyring node loads accounts at startup; restart it to serve this account."

// runNewAccountCli and runImportAccountCli write to the database without
// going through a node. A node that is already running does not see the new
// account until it restarts; use the new_account RPC method to create an
// account on a live node.
func runNewAccountCli(logger log.Logger) {
	_, provider, err := openAccountStore(logger)
	if err != nil {
		logger.Fatal("failed to open account store", "error", err)
	}

	addr, err := newAccountInteractive(os.Stdout, terminalSecretReader, provider)
	if err != nil {
		logger.Fatal("failed to create account", "error", err)
	}
	reportStoredAccount(os.Stdout, "created", addr)
}

func runImportAccountCli(logger log.Logger) {
	_, provider, err := openAccountStore(logger)
	if err != nil {
		logger.Fatal("failed to open account store", "error", err)
	}

	addr, err := importAccountInteractive(os.Stdout, terminalSecretReader, provider)
	if err != nil {
		logger.Fatal("failed to import account", "error", err)
	}
	reportStoredAccount(os.Stdout, "imported", addr)
}

func reportStoredAccount(w io.Writer, verb string, addr account.Address) {
	fmt.Fprintf(w, "Account %s: %s\n", verb, addr.Hex())
	fmt.Fprintln(w, offlineNotice)
}

func runAuditLogCli(logger log.Logger, args []string) {
	dbConf, err := LoadDatabaseConfig(logger)
	if err != nil {
		logger.Fatal("failed to load database config", "error", err)
	}
	db, err := ConnectToDB(dbConf, logger)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}

	var address *string
	if len(args) > 0 {
		if !common.IsHexAddress(args[0]) {
			logger.Fatal("invalid address", "address", args[0])
		}
		hex := common.HexToAddress(args[0]).Hex()
		address = &hex
	}

	if err := printAuditLog(context.Background(), os.Stdout, NewAuditLogStore(db), address); err != nil {
		logger.Fatal("failed to list audit log", "error", err)
	}
}

// keyringClient is the part of rpc.Client used by the remote commands.
type keyringClient interface {
	UnlockAccount(ctx context.Context, req rpc.UnlockAccountRequest) (rpc.UnlockAccountResponse, []sign.Signature, error)
	Sign(ctx context.Context, req rpc.SignRequest) (rpc.SignResponse, []sign.Signature, error)
}

// runRemoteSignCli unlocks an account on a running node and signs a digest.
//
//	keyring sign ws://localhost:8000/ws 0xAddress 0xHash
func runRemoteSignCli(logger log.Logger, args []string) {
	if len(args) != 3 {
		logger.Fatal("usage: sign <node-url> <address> <hash>")
	}

	ctx, cancel := context.WithTimeout(log.SetContextLogger(context.Background(), logger), remoteCallTimeout)
	defer cancel()

	client := rpc.NewClient(rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig))
	err := client.Start(ctx, args[0], func(err error) {
		if err != nil {
			logger.Warn("connection closed", "error", err)
		}
	})
	if err != nil {
		logger.Fatal("failed to connect to node", "url", args[0], "error", err)
	}

	sig, err := remoteSignInteractive(ctx, os.Stdout, terminalSecretReader, client, args[1], args[2])
	if err != nil {
		logger.Fatal("failed to sign", "error", err)
	}
	fmt.Printf("Signature: %s\n", sig.String())
}

func remoteSignInteractive(ctx context.Context, w io.Writer, read secretReader, client keyringClient, address, hash string) (sign.Signature, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	address = common.HexToAddress(address).Hex()

	fmt.Fprintf(w, "Enter password for %s:\n", address)
	password, err := read()
	if err != nil {
		return nil, fmt.Errorf("error reading password: %w", err)
	}

	if _, _, err := client.UnlockAccount(ctx, rpc.UnlockAccountRequest{Address: address, Password: string(password)}); err != nil {
		return nil, fmt.Errorf("unlock failed: %w", err)
	}

	res, _, err := client.Sign(ctx, rpc.SignRequest{Address: address, Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("sign failed: %w", err)
	}
	return res.Signature, nil
}

// printAuditLog renders the newest MaxLimit entries; the footer counts every
// matching entry.
func printAuditLog(ctx context.Context, w io.Writer, store *AuditLogStore, address *string) error {
	logs, err := store.List(ctx, address, nil, &ListOptions{Limit: MaxLimit})
	if err != nil {
		return err
	}
	total, err := store.Count(ctx, address, nil)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Time", "Address", "Action", "Connection"})
	t.AppendSeparator()
	for _, entry := range logs {
		t.AppendRow(table.Row{entry.CreatedAt.Format(time.RFC3339), entry.Address, entry.Action, entry.ConnectionID})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, AutoMerge: true},
	})
	t.Render()
	return nil
}

func openAccountStore(logger log.Logger) (*AccountStore, *account.KeyProvider, error) {
	dbConf, err := LoadDatabaseConfig(logger)
	if err != nil {
		return nil, nil, err
	}

	db, err := ConnectToDB(dbConf, logger)
	if err != nil {
		return nil, nil, err
	}

	store := NewAccountStore(db)
	provider, err := account.NewKeyProvider(store, account.WithBcryptCost(bcrypt.DefaultCost))
	if err != nil {
		return nil, nil, err
	}
	return store, provider, nil
}

func printAccounts(w io.Writer, store *AccountStore, provider account.Provider) error {
	addrs, err := provider.Accounts()
	if err != nil {
		return err
	}
	total, err := store.CountAccounts()
	if err != nil {
		return err
	}

	stored, err := store.LoadAccounts()
	if err != nil {
		return err
	}
	order := make(map[account.Address]int, len(stored))
	for i, acc := range stored {
		order[acc.Address] = i
	}

	rows := slices.Clone(addrs)
	slices.SortFunc(rows, func(a, b account.Address) int {
		return order[a] - order[b]
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Address"})
	t.AppendSeparator()
	for i, addr := range rows {
		t.AppendRow(table.Row{i + 1, addr.Hex()})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
	return nil
}

func readNewPassword(w io.Writer, read secretReader) (string, error) {
	fmt.Fprintln(w, "Enter password:")
	first, err := read()
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	fmt.Fprintln(w, "Repeat password:")
	second, err := read()
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func newAccountInteractive(w io.Writer, read secretReader, provider account.Provider) (account.Address, error) {
	password, err := readNewPassword(w, read)
	if err != nil {
		return account.Address{}, err
	}
	return provider.NewAccount(password)
}

func importAccountInteractive(w io.Writer, read secretReader, provider *account.KeyProvider) (account.Address, error) {
	fmt.Fprintln(w, "Paste private key:")
	keyHex, err := read()
	if err != nil {
		return account.Address{}, fmt.Errorf("error reading key: %w", err)
	}
	key, err := parsePrivateKey(string(keyHex))
	if err != nil {
		return account.Address{}, err
	}

	password, err := readNewPassword(w, read)
	if err != nil {
		return account.Address{}, err
	}
	return provider.ImportAccount(key, password)
}

func parsePrivateKey(keyHex string) (*ecdsa.PrivateKey, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.New("invalid private key")
	}
	return key, nil
}
