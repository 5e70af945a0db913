package shared

// Result outcomes returned to callers of the data-access core.
const (
	ResultSuccess = "Success"
	ResultFailure = "Failure"
)

// Result is the envelope handed back to route handlers.
type Result struct {
	Result string `json:"result"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`

	err error
}

// Success wraps data in a successful Result.
func Success(data any) Result {
	return Result{Result: ResultSuccess, Data: data}
}

// Failure wraps err in a failed Result. Server-side errors keep their detail
// out of the envelope.
func Failure(err error) Result {
	res := Result{Result: ResultFailure, Kind: ErrorKind(err), err: err}
	if IsClientError(err) {
		res.Error = err.Error()
	}
	return res
}

// From builds a Result from the output of an operation.
func From(data any, err error) Result {
	if err != nil {
		return Failure(err)
	}
	return Success(data)
}

// Err returns the error carried by a failed Result.
func (r Result) Err() error {
	return r.err
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Result == ResultSuccess
}
