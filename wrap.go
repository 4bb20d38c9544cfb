package aio

// BindOwner attaches an owning reference to a completion handler: the
// owner is passed back to the handler on completion, keeping it alive for
// the duration of the operation.
func BindOwner[T any](owner T, h func(owner T, err error)) func(error) {
	return func(err error) {
		h(owner, err)
	}
}

// BindOwnerIO is BindOwner for byte-count completions.
func BindOwnerIO[T any](owner T, h func(owner T, n int, err error)) func(int, error) {
	return func(n int, err error) {
		h(owner, n, err)
	}
}
