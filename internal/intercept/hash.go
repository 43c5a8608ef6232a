package intercept

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"

	"overseer/internal/pathguard"
	"overseer/internal/store"
)

// originalHash computes the sentinel or digest the Approval handler stores
// as ApprovalRequest.OriginalHash: store.NewFileSentinel when filePath does
// not exist yet under workspaceRoot, otherwise the hex sha256 of its current
// contents. A path_violation from pathguard propagates unchanged.
func originalHash(workspaceRoot, filePath string) (string, error) {
	target, err := pathguard.Validate(workspaceRoot, filePath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.NewFileSentinel, nil
		}
		return "", err
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
