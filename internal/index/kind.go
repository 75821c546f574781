package index

import (
	"fmt"

	pxerrors "github.com/pxtools/pxindex/internal/errors"
	"github.com/pxtools/pxindex/internal/paradox"
)

// SecondaryKind is the file type every secondary index is written as.
const SecondaryKind = paradox.FileTypeIncSecIndexG

// DestinationKind maps the file type of a source to the type of the
// primary index built from it.
func DestinationKind(source paradox.FileType) (paradox.FileType, error) {
	switch source {
	case paradox.FileTypeIndexDB, paradox.FileTypeNonIndexDB:
		return paradox.FileTypePrimIndex, nil
	case paradox.FileTypeNonIncSecIndex, paradox.FileTypeIncSecIndex:
		return paradox.FileTypeSecIndex, nil
	case paradox.FileTypeNonIncSecIndexG, paradox.FileTypeIncSecIndexG:
		return paradox.FileTypeSecIndexG, nil
	case paradox.FileTypePrimIndex, paradox.FileTypeSecIndex, paradox.FileTypeSecIndexG:
		return 0, pxerrors.NewPreconditionError(pxerrors.CodeUnclassifiedFileType,
			fmt.Sprintf("cannot build a primary index from a %s file", source))
	default:
		return 0, pxerrors.NewPreconditionError(pxerrors.CodeUnclassifiedFileType,
			fmt.Sprintf("unknown source file type %s", source))
	}
}
