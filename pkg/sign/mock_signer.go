package sign

import "fmt"

var (
	_ Signer    = (*MockSigner)(nil)
	_ PublicKey = (*MockPublicKey)(nil)
	_ Address   = (*MockAddress)(nil)
)

// MockSigner produces predictable signatures for tests: the input followed by
// "-signed-by-<id>".
type MockSigner struct {
	publicKey *MockPublicKey
}

func NewMockSigner(id string) *MockSigner {
	return &MockSigner{publicKey: &MockPublicKey{id: id}}
}

func (m *MockSigner) Sign(data []byte) (Signature, error) {
	sig := make([]byte, 0, len(data)+len(m.publicKey.id)+11)
	sig = append(sig, data...)
	sig = append(sig, fmt.Sprintf("-signed-by-%s", m.publicKey.id)...)
	return Signature(sig), nil
}

func (m *MockSigner) PublicKey() PublicKey {
	return m.publicKey
}

// MockPublicKey uses its id as both key bytes and address.
type MockPublicKey struct {
	id string
}

func (m *MockPublicKey) Address() Address { return &MockAddress{id: m.id} }
func (m *MockPublicKey) Bytes() []byte    { return []byte(m.id) }

// MockAddress is an address represented by an arbitrary string.
type MockAddress struct {
	id string
}

func NewMockAddress(id string) *MockAddress {
	return &MockAddress{id: id}
}

func (m *MockAddress) String() string { return m.id }

func (m *MockAddress) Equals(other Address) bool {
	return other != nil && m.id == other.String()
}
