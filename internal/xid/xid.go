package xid

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a time-ordered identifier such as "prd-01926f0c8e2a7b3c9d4e5f60718293a4".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}

// Invoice builds a document number of the form PREFIX-YYYYMMDD-NNNNNN-XXXX where
// NNNNNN are the last six digits of the unix millisecond clock and XXXX is random.
func Invoice(prefix string, at time.Time) string {
	suffix := uuid.New()
	return fmt.Sprintf("%s-%s-%06d-%s",
		prefix,
		at.Format("20060102"),
		at.UnixMilli()%1_000_000,
		strings.ToUpper(hex.EncodeToString(suffix[:2])),
	)
}
