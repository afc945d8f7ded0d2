package vaa

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/pyth-network/hermes-go/internal/crypto"
	"github.com/pyth-network/hermes-go/internal/wire"
)

func generateGuardians(t *testing.T, n int) ([]*secp256k1.PrivateKey, []([20]byte)) {
	t.Helper()
	privs := make([]*secp256k1.PrivateKey, n)
	addrs := make([][20]byte, n)
	for i := 0; i < n; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = crypto.ParsePublicKey(priv)
	}
	return privs, addrs
}

func sign(t *testing.T, priv *secp256k1.PrivateKey, digest [32]byte, index uint8) wire.Signature {
	t.Helper()
	compact := ecdsa.SignCompact(priv, digest[:], false)
	sig := wire.Signature{Index: index}
	copy(sig.R[:], compact[1:33])
	copy(sig.S[:], compact[33:65])
	sig.V = compact[0] - 27
	return sig
}

func buildVAA(t *testing.T, gsi uint32, emitterChain uint16, emitterAddr [32]byte, sequence uint64, payload []byte, signers []struct {
	priv  *secp256k1.PrivateKey
	index uint8
}) []byte {
	t.Helper()

	body := wire.NewWriter()
	body.U32(0) // timestamp
	body.U32(0) // nonce
	body.U16(emitterChain)
	body.Fixed(emitterAddr[:])
	body.U64(sequence)
	body.U8(0) // consistency level
	body.Fixed(payload)
	bodyBytes := body.Bytes()

	h1 := crypto.Keccak256(bodyBytes)
	digest := crypto.Keccak256(h1[:])

	sigs := make([]wire.Signature, 0, len(signers))
	for _, s := range signers {
		sigs = append(sigs, sign(t, s.priv, digest, s.index))
	}

	w := wire.NewWriter()
	w.U8(1) // version
	w.U32(gsi)
	w.U8(uint8(len(sigs)))
	for _, sig := range sigs {
		w.U8(sig.Index)
		w.Fixed(sig.R[:])
		w.Fixed(sig.S[:])
		w.U8(sig.V)
	}
	w.Fixed(bodyBytes)
	return w.Bytes()
}

func setupVerifier(t *testing.T, numGuardians int) (*Verifier, []*secp256k1.PrivateKey, Source) {
	t.Helper()
	privs, addrs := generateGuardians(t, numGuardians)
	store := NewGuardianSetStore()
	store.Upsert(GuardianSet{Index: 0, Keys: addrs}, true)

	var emitterAddr [32]byte
	emitterAddr[31] = 0xAB
	source := Source{EmitterChain: 26, EmitterAddress: emitterAddr}

	v := NewVerifier(store, []Source{source})
	return v, privs, source
}

func TestVerify_QuorumScenario(t *testing.T) {
	const numGuardians = 19
	const quorum = 13
	v, privs, source := setupVerifier(t, numGuardians)

	signers := func(n int) []struct {
		priv  *secp256k1.PrivateKey
		index uint8
	} {
		out := make([]struct {
			priv  *secp256k1.PrivateKey
			index uint8
		}, n)
		for i := 0; i < n; i++ {
			out[i] = struct {
				priv  *secp256k1.PrivateKey
				index uint8
			}{privs[i], uint8(i)}
		}
		return out
	}

	raw12 := buildVAA(t, 0, source.EmitterChain, source.EmitterAddress, 1, []byte("payload"), signers(quorum-1))
	_, err := v.Verify(raw12)
	require.ErrorIs(t, err, ErrInsufficientSignatures)

	raw13 := buildVAA(t, 0, source.EmitterChain, source.EmitterAddress, 2, []byte("payload"), signers(quorum))
	vm, err := v.Verify(raw13)
	require.NoError(t, err)
	require.Len(t, vm.Signatures, quorum)
}

func TestVerify_UnsortedSignersRejected(t *testing.T) {
	v, privs, source := setupVerifier(t, 5)

	signers := []struct {
		priv  *secp256k1.PrivateKey
		index uint8
	}{
		{privs[2], 2},
		{privs[1], 1}, // descending - violates strictly-increasing order
	}

	raw := buildVAA(t, 0, source.EmitterChain, source.EmitterAddress, 1, []byte("p"), signers)
	_, err := v.Verify(raw)
	require.ErrorIs(t, err, ErrUnsortedSigners)
}

func TestVerify_DuplicateSequenceRejected(t *testing.T) {
	v, privs, source := setupVerifier(t, 5)
	signers := []struct {
		priv  *secp256k1.PrivateKey
		index uint8
	}{{privs[0], 0}, {privs[1], 1}, {privs[2], 2}, {privs[3], 3}}

	raw := buildVAA(t, 0, source.EmitterChain, source.EmitterAddress, 7, []byte("p"), signers)
	_, err := v.Verify(raw)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrDuplicateVAA)
}

func TestVerify_UnknownSourceRejected(t *testing.T) {
	v, privs, _ := setupVerifier(t, 5)
	var otherEmitter [32]byte
	otherEmitter[0] = 1
	signers := []struct {
		priv  *secp256k1.PrivateKey
		index uint8
	}{{privs[0], 0}, {privs[1], 1}, {privs[2], 2}, {privs[3], 3}}

	raw := buildVAA(t, 0, 1, otherEmitter, 1, []byte("p"), signers)
	_, err := v.Verify(raw)
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestGuardianSetStore_CurrentAndExpiry(t *testing.T) {
	store := NewGuardianSetStore()
	store.Upsert(GuardianSet{Index: 0, ExpirationTime: 0}, true)
	store.Upsert(GuardianSet{Index: 1, ExpirationTime: 100}, true)
	require.Equal(t, uint32(1), store.CurrentIndex())

	set, ok := store.Get(0)
	require.True(t, ok)
	require.Equal(t, uint32(0), set.ExpirationTime)
}
