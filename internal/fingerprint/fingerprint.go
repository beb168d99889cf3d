// Package fingerprint derives stable identities for errors and assigns
// default severities.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/claimstack/errtrack/internal/models"
)

// Length is the fixed size of a computed fingerprint.
const Length = 16

// Normalization rules run in a fixed order: URL stripping must happen before
// the path-id rule so a leftover numeric suffix cannot re-match.
var (
	timestampPattern = regexp.MustCompile(`\d{13,}`)
	uuidPattern      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	urlPattern       = regexp.MustCompile(`https?://[^\s"']+`)
	pathIDPattern    = regexp.MustCompile(`/(\w+)/\d+`)
)

// Normalize strips dynamic substrings from an error message so messages
// differing only in ids, timestamps, or URLs collapse to the same template.
func Normalize(message string) string {
	message = timestampPattern.ReplaceAllString(message, "[timestamp]")
	message = uuidPattern.ReplaceAllString(message, "[uuid]")
	message = urlPattern.ReplaceAllString(message, "[url]")
	message = pathIDPattern.ReplaceAllString(message, "/$1/[id]")
	return message
}

// Compute derives the stable fingerprint for an error. Missing source parts
// contribute empty segments so the identity stays a pure function of its
// inputs.
func Compute(errType models.ErrorType, name, message string, source *models.SourceLocation) string {
	file := ""
	line := ""
	if source != nil {
		file = source.File
		line = fmt.Sprintf("%d", source.Line)
	}
	joined := strings.Join([]string{string(errType), name, Normalize(message), file, line}, ":")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:Length]
}
