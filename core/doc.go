// Package core contains the broker protocol contracts: the wire envelope, the
// typed error taxonomy, the result and record codecs, the hello negotiation and
// the connection lifecycle. Transport and storage adapters depend on this
// package; core must not depend on any concrete adapter.
package core
