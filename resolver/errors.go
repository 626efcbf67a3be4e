package resolver

import "errors"

var (
	// ErrWouldBlock means the transport has nothing ready yet; poll the
	// descriptor and try again. Never fatal.
	ErrWouldBlock = errors.New("resolver: would block")

	// ErrOutstanding is returned by Submit while a query is in flight.
	// One query per resolver is the invariant that keeps the mapping of
	// transaction id and source port to query 1:1.
	ErrOutstanding = errors.New("resolver: query already outstanding")

	// ErrNoQuery is returned by Check and Fetch with nothing submitted.
	ErrNoQuery = errors.New("resolver: no query outstanding")

	// ErrTimeout is the terminal error after attempts times servers are
	// exhausted without an answer.
	ErrTimeout = errors.New("resolver: query timed out")

	// ErrMaxDepth is the terminal error when referral or alias chasing
	// exceeds the recursion bound.
	ErrMaxDepth = errors.New("resolver: maximum recursion depth exceeded")

	// ErrNoServers means no nameserver candidate is known for the query.
	ErrNoServers = errors.New("resolver: no nameservers")

	// ErrClosed is returned when using a closed resolver.
	ErrClosed = errors.New("resolver: closed")

	// ErrTransport means the connection type exposes no descriptor.
	ErrTransport = errors.New("resolver: unsupported transport")
)
