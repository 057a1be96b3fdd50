package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreator = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func saltFromUint(n byte) [32]byte {
	var s [32]byte
	s[31] = n
	return s
}

func TestProxyInitCodeHash(t *testing.T) {
	assert.Equal(t, gethcrypto.Keccak256(ProxyInitCode[:]), ProxyInitCodeHash[:])
	assert.Equal(t, gethcrypto.Keccak256(ProxyInitCode[:]), Keccak256(ProxyInitCode[:]))
}

func TestCreate3AddressKnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		salt     [32]byte
		expected string
	}{
		{name: "zero salt", salt: saltFromUint(0), expected: "0xdb932379df9870cb4badaa2152e001f411afee2c"},
		{name: "salt one", salt: saltFromUint(1), expected: "0x3449d50615f85c454ca5cc2974af63e12243aab0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Create3Address(testCreator, tt.salt)
			assert.Equal(t, common.HexToAddress(tt.expected), got)
		})
	}
}

func TestCreate3AddressMatchesGethOracle(t *testing.T) {
	d := NewDeriver(testCreator)
	for i := 0; i < 64; i++ {
		salt := common.BytesToHash(Keccak256([]byte{byte(i)}))

		proxy := gethcrypto.CreateAddress2(testCreator, salt, ProxyInitCodeHash[:])
		want := gethcrypto.CreateAddress(proxy, 1)

		var got, gotProxy common.Address
		s := [32]byte(salt)
		d.DeriveInto(&s, &got)
		d.ProxyInto(&s, &gotProxy)
		require.Equal(t, want, got, "salt %s", salt.Hex())
		require.Equal(t, proxy, gotProxy, "salt %s", salt.Hex())
	}
}

func TestDeriverIsDeterministic(t *testing.T) {
	salt := saltFromUint(42)
	a := NewDeriver(testCreator)
	b := NewDeriver(testCreator)

	first := a.Derive(salt)
	assert.Equal(t, first, a.Derive(salt))
	assert.Equal(t, first, b.Derive(salt))
	assert.Equal(t, first, Create3Address(testCreator, salt))
}

func TestDeriverDistinctSalts(t *testing.T) {
	d := NewDeriver(testCreator)
	seen := make(map[common.Address][32]byte, 4096)
	for i := 0; i < 4096; i++ {
		var salt [32]byte
		salt[0] = byte(i >> 8)
		salt[31] = byte(i)
		addr := d.Derive(salt)
		prev, dup := seen[addr]
		require.False(t, dup, "salts %x and %x collide", prev, salt)
		seen[addr] = salt
	}
}

func TestDeriverDependsOnDeployer(t *testing.T) {
	salt := saltFromUint(7)
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	assert.NotEqual(t, Create3Address(testCreator, salt), Create3Address(other, salt))
}

func TestFactoryDeriver(t *testing.T) {
	factory := common.HexToAddress(DefaultFactoryAddress)
	salt := saltFromUint(0)

	assert.Equal(t,
		common.HexToHash("0x85c9ed8aee9186f40214067c18f42e8e76753b79b48d994f15f0f1eafd0811cb"),
		FactorySalt(testCreator, salt))

	got := Create3AddressViaFactory(factory, testCreator, salt)
	assert.Equal(t, common.HexToAddress("0x7e912a3b046a171cf8ffcd4335fc4824bd7c2786"), got)

	// same as deploying directly from the factory with the namespaced salt
	assert.Equal(t, Create3Address(factory, FactorySalt(testCreator, salt)), got)
}

func TestDeriveIntoDoesNotAllocate(t *testing.T) {
	d := NewDeriver(testCreator)
	salt := saltFromUint(9)
	var out common.Address
	allocs := testing.AllocsPerRun(100, func() {
		d.DeriveInto(&salt, &out)
	})
	assert.Zero(t, allocs)
}

func BenchmarkDeriveInto(b *testing.B) {
	d := NewDeriver(testCreator)
	var salt [32]byte
	var out common.Address
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		salt[31] = byte(i)
		d.DeriveInto(&salt, &out)
	}
}
