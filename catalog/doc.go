// Package catalog implements the catalog registry actors.
//
// A Catalog is the root actor. On AddTrack it derives the addresses of the
// Track and, optionally, the Collection the request names, and walks the
// request through them: the collection hop first, then the track hop, then a
// registration notice to the collection and a final refund to the caller.
// Children are deployed by the first message that reaches them; an actor
// that already exists answers with Created unset, so the catalog counters
// move exactly once per child no matter how many requests race.
package catalog
