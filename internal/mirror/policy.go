package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/bianoble/glance-stream-sync/internal/source"
)

// SignedSuffix marks metadata that must carry a clearsigned signature.
const SignedSuffix = "sjson"

// ErrUnsigned is returned when a .sjson document carries no signature block.
var ErrUnsigned = errors.New("document is not clearsigned")

// LoadKeyring reads a binary or ASCII-armored public keyring.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	keys, err := openpgp.ReadKeyRing(bytes.NewReader(data))
	if err != nil {
		armored, armorErr := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
		if armorErr != nil {
			return nil, fmt.Errorf("parsing keyring %s: %w", path, err)
		}
		keys = armored
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keyring %s contains no keys", path)
	}
	return keys, nil
}

// NewPolicy returns a content policy that verifies documents whose path ends
// in .sjson against keyring and returns their plaintext. Everything else
// passes through unchanged.
func NewPolicy(keyring openpgp.KeyRing) source.Policy {
	return func(content []byte, path string) ([]byte, error) {
		if !strings.HasSuffix(path, SignedSuffix) {
			return content, nil
		}
		return verifyClearsigned(keyring, content)
	}
}

func verifyClearsigned(keyring openpgp.KeyRing, content []byte) ([]byte, error) {
	if el, ok := keyring.(openpgp.EntityList); keyring == nil || (ok && len(el) == 0) {
		return nil, fmt.Errorf("signed document but no keyring configured")
	}

	block, _ := clearsign.Decode(content)
	if block == nil {
		return nil, ErrUnsigned
	}

	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
		return nil, fmt.Errorf("verifying signature: %w", err)
	}
	return block.Plaintext, nil
}
