package writer

import (
	"strings"

	"github.com/rs/xid"
	"github.com/turbot/tailwriter/internal/constants"
)

// NameProvider provides unique artifact names.
// Final names are "<prefix>_<token><ext>", where token is a globally unique xid. While being written
// an artifact has the temporary name "_tmp_<prefix>_<token><ext>" in the same directory.
type NameProvider struct {
	prefix    string
	extension string
}

func NewNameProvider(prefix, extension string) *NameProvider {
	if prefix == "" {
		prefix = constants.DefaultUniquePrefix
	}
	return &NameProvider{
		prefix:    prefix,
		extension: extension,
	}
}

func (p *NameProvider) Prefix() string {
	return p.prefix
}

func (p *NameProvider) Extension() string {
	return p.extension
}

// Next returns a new temporary and final file name pair
func (p *NameProvider) Next() (tempName, finalName string) {
	finalName = p.prefix + "_" + xid.New().String() + p.extension
	return constants.TempFilePrefix + finalName, finalName
}

// TempPattern returns a glob pattern matching the temporary names of this provider
func (p *NameProvider) TempPattern() string {
	return constants.TempFilePrefix + p.prefix + "_*"
}

func IsTempName(name string) bool {
	return strings.HasPrefix(name, constants.TempFilePrefix)
}

// FinalNameFor returns the final name for a temporary name
func FinalNameFor(tempName string) string {
	return strings.TrimPrefix(tempName, constants.TempFilePrefix)
}
