/*
Package wallet is the ledger service for prepaid balances.

Every balance change goes through Debit or Credit, which delegate to the
repository's single-transaction primitives: the balance guard, the
balance update and the append-only ledger insert commit together. A
debit that would overdraw fails with ErrInsufficientFunds and leaves the
balance untouched.

Credits may carry an idempotency reference (a payment processor event
id). Replaying the same reference returns ErrDuplicateReference and
changes nothing, which the payment bridge treats as success.

Reads are served through a redis cache that is invalidated on every
mutation; the database remains authoritative.
*/
package wallet
