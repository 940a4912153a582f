/*
Package session owns the consultation lifecycle:

	pending -> active -> completed | insufficient_funds | cancelled | failed

A session freezes its per-minute rate at creation. While active it is
billed incrementally: each tick rounds the unbilled elapsed time up to
whole minutes, debits the client's wallet for them and advances the
billed-through watermark by the rounded amount, so a shorter follow-up
interval is never billed twice. Ending a session performs one final
catch-up tick, settles the operator's earning and freezes the row.

Tick and End racing (a scheduler sweep against an explicit hang-up) is
serialized on the session's database row lock; the loser observes the
terminal state and no-ops. Terminal states are final and never billed.
*/
package session
