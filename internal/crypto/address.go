package crypto

import (
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	// CREATE3 factory from the original deployment tooling (CREATE3Factory by ZeframLou)
	DefaultFactoryAddress = "0x93FEC2C00BfE902F733B57c5a6CeeD7CD1384AE1"

	// CREATE2 input layout: 0xff (1) + deployer (20) + salt (32) + proxy initcode hash (32) = 85
	Create2PrefixLen = 1 + common.AddressLength
	Create2SaltLen   = 32
	Create2SuffixLen = 32
	Create2InputLen  = Create2PrefixLen + Create2SaltLen + Create2SuffixLen

	// CREATE input layout for rlp([proxy, 1]): 0xd6 (list) + 0x94 (20-byte string) + proxy (20) + 0x01 = 23
	CreateInputLen = 2 + common.AddressLength + 1

	// Factory salt layout: creator (20) + salt (32)
	FactorySaltInputLen = common.AddressLength + Create2SaltLen
)

var (
	// ProxyInitCode is the minimal CREATE3 proxy: it CREATEs whatever calldata it receives.
	ProxyInitCode = [...]byte{
		0x67, 0x36, 0x3d, 0x3d, 0x37, 0x36, 0x3d, 0x34, 0xf0, 0x3d, 0x52, 0x60, 0x08, 0x60, 0x18, 0xf3,
	}

	// ProxyInitCodeHash is keccak256(ProxyInitCode).
	ProxyInitCodeHash = [32]byte{
		0x21, 0xc3, 0x5d, 0xbe, 0x1b, 0x34, 0x4a, 0x24, 0x88, 0xcf, 0x33, 0x21, 0xd6, 0xce, 0x54, 0x2f,
		0x8e, 0x9f, 0x30, 0x55, 0x44, 0xff, 0x09, 0xe4, 0x99, 0x3a, 0x62, 0x31, 0x9a, 0x49, 0x7c, 0x1f,
	}

	// rlp list header (0xc0 + 22) and string header (0x80 + 20) for [proxy, 1]
	createHeader = [2]byte{0xd6, 0x94}
)

// KeccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state. Read is faster than Sum
// because it doesn't copy the internal state, but also modifies the internal state.
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// NewKeccakState creates a new legacy (pre-NIST padding) Keccak-256 state.
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Deriver computes CREATE3 addresses for a fixed deployer. It owns its hasher and
// input buffers, so a Deriver must not be shared between goroutines.
type Deriver struct {
	hasher  KeccakState
	factory bool

	// Pre-laid buffers; only the salt region changes per attempt.
	saltInput    [FactorySaltInputLen]byte
	create2Input [Create2InputLen]byte
	createInput  [CreateInputLen]byte
	digest       [32]byte
}

// NewDeriver returns a Deriver for contracts deployed directly by deployer.
func NewDeriver(deployer common.Address) *Deriver {
	d := &Deriver{hasher: NewKeccakState()}
	d.create2Input[0] = 0xff
	copy(d.create2Input[1:Create2PrefixLen], deployer[:])
	copy(d.create2Input[Create2PrefixLen+Create2SaltLen:], ProxyInitCodeHash[:])
	copy(d.createInput[:2], createHeader[:])
	d.createInput[CreateInputLen-1] = 0x01
	return d
}

// NewFactoryDeriver returns a Deriver for contracts deployed through a CREATE3 factory
// on behalf of creator. The factory namespaces salts per caller, so the salt handed to
// CREATE2 is keccak256(creator ++ salt) and the factory is the deployer.
func NewFactoryDeriver(factory, creator common.Address) *Deriver {
	d := NewDeriver(factory)
	d.factory = true
	copy(d.saltInput[:common.AddressLength], creator[:])
	return d
}

// DeriveInto computes the CREATE3 address for salt and writes it into out.
// It performs no allocations.
func (d *Deriver) DeriveInto(salt *[32]byte, out *common.Address) {
	saltRegion := d.create2Input[Create2PrefixLen : Create2PrefixLen+Create2SaltLen]
	if d.factory {
		copy(d.saltInput[common.AddressLength:], salt[:])
		d.sum(d.saltInput[:])
		copy(saltRegion, d.digest[:])
	} else {
		copy(saltRegion, salt[:])
	}

	// stage 1: CREATE2 address of the proxy
	d.sum(d.create2Input[:])
	copy(d.createInput[2:2+common.AddressLength], d.digest[12:])

	// stage 2: CREATE address of the proxy's first deployment (nonce 1)
	d.sum(d.createInput[:])
	copy(out[:], d.digest[12:])
}

// Derive is DeriveInto returning the address by value.
func (d *Deriver) Derive(salt [32]byte) common.Address {
	var out common.Address
	d.DeriveInto(&salt, &out)
	return out
}

// ProxyInto writes the intermediate proxy address for salt into out.
func (d *Deriver) ProxyInto(salt *[32]byte, out *common.Address) {
	var addr common.Address
	d.DeriveInto(salt, &addr)
	copy(out[:], d.createInput[2:2+common.AddressLength])
}

func (d *Deriver) sum(b []byte) {
	d.hasher.Reset()
	d.hasher.Write(b)
	d.hasher.Read(d.digest[:])
}

// Create3Address computes the CREATE3 address of a contract deployed by deployer with salt.
func Create3Address(deployer common.Address, salt [32]byte) common.Address {
	return NewDeriver(deployer).Derive(salt)
}

// Create3AddressViaFactory computes the CREATE3 address of a contract deployed by
// creator through factory with salt.
func Create3AddressViaFactory(factory, creator common.Address, salt [32]byte) common.Address {
	return NewFactoryDeriver(factory, creator).Derive(salt)
}

// FactorySalt returns the salt a CREATE3 factory hands to CREATE2 for creator.
func FactorySalt(creator common.Address, salt [32]byte) common.Hash {
	return common.BytesToHash(Keccak256(creator[:], salt[:]))
}

// ---- helpers ----

// Keccak256 calculates the keccak256 hash of the concatenated input bytes
func Keccak256(data ...[]byte) []byte {
	h := NewKeccakState()
	for _, b := range data {
		h.Write(b)
	}
	out := make([]byte, 32)
	h.Read(out)
	return out
}
