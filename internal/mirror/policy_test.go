package mirror

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeyConfig = &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA}

func newSigner(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "test", name+"@example.com", testKeyConfig)
	require.NoError(t, err)
	return e
}

func clearsignWith(t *testing.T, e *openpgp.Entity, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, e.PrivateKey, testKeyConfig)
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestPolicyVerifiesSignedDocuments(t *testing.T) {
	signer := newSigner(t, "cloud-images")
	signed := clearsignWith(t, signer, `{"format":"index:1.0"}`)

	policy := NewPolicy(openpgp.EntityList{signer})
	out, err := policy(signed, "streams/v1/index.sjson")
	require.NoError(t, err)
	assert.Equal(t, `{"format":"index:1.0"}`, string(out))
}

func TestPolicyRejectsWrongKey(t *testing.T) {
	signer := newSigner(t, "attacker")
	trusted := newSigner(t, "cloud-images")
	signed := clearsignWith(t, signer, `{"format":"index:1.0"}`)

	_, err := NewPolicy(openpgp.EntityList{trusted})(signed, "streams/v1/index.sjson")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifying signature")
}

func TestPolicyRejectsUnsigned(t *testing.T) {
	trusted := newSigner(t, "cloud-images")
	_, err := NewPolicy(openpgp.EntityList{trusted})([]byte(`{"format":"index:1.0"}`), "streams/v1/index.sjson")
	assert.True(t, errors.Is(err, ErrUnsigned))
}

func TestPolicyRequiresKeyring(t *testing.T) {
	_, err := NewPolicy(openpgp.EntityList(nil))([]byte("x"), "index.sjson")
	assert.ErrorContains(t, err, "no keyring")
}

func TestPolicyPassesUnsignedPaths(t *testing.T) {
	out, err := NewPolicy(nil)([]byte("raw"), "streams/v1/index.json")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(out))
}

func TestLoadKeyring(t *testing.T) {
	signer := newSigner(t, "cloud-images")
	dir := t.TempDir()

	var binary bytes.Buffer
	require.NoError(t, signer.Serialize(&binary))
	binPath := filepath.Join(dir, "keyring.gpg")
	require.NoError(t, os.WriteFile(binPath, binary.Bytes(), 0o644))

	var armored bytes.Buffer
	w, err := armor.Encode(&armored, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, signer.Serialize(w))
	require.NoError(t, w.Close())
	ascPath := filepath.Join(dir, "keyring.asc")
	require.NoError(t, os.WriteFile(ascPath, armored.Bytes(), 0o644))

	for _, p := range []string{binPath, ascPath} {
		keys, err := LoadKeyring(p)
		require.NoError(t, err, p)
		require.Len(t, keys, 1)
		assert.Equal(t, signer.PrimaryKey.KeyId, keys[0].PrimaryKey.KeyId)
	}

	_, err = LoadKeyring(filepath.Join(dir, "missing.gpg"))
	assert.ErrorContains(t, err, "reading keyring")

	junk := filepath.Join(dir, "junk.gpg")
	require.NoError(t, os.WriteFile(junk, []byte("not a key"), 0o644))
	_, err = LoadKeyring(junk)
	assert.Error(t, err)
}
