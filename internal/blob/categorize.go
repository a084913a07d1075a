package blob

import "errors"

// Error categories used as metric labels for blob store failures.
const (
	ErrorCategoryUnauthorized = "blob_unauthorized"
	ErrorCategoryStore        = "blob"
)

// CategorizeError returns the metric label for a blob sentinel error anywhere in err's chain,
// or "" when err carries none.
func CategorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return ErrorCategoryUnauthorized
	case errors.Is(err, ErrExists), errors.Is(err, ErrNotFound):
		return ErrorCategoryStore
	}
	return ""
}
