package core

import "time"

// Identity identifies the author and committer of a commit.
type Identity struct {
	Name  string
	Email string
}

// CommitTimezone is the fixed offset every commit this module creates
// is stamped with.
var CommitTimezone = time.FixedZone("spaghettifs", 2*60*60)

// CommitIdentity is the single, fixed author every mount commits as.
// A mounted filesystem has exactly one writer, so unlike CommitDB's
// per-caller Identity this is a package constant.
var CommitIdentity = Identity{
	Name:  "Spaghetti User",
	Email: "noreply@grep.ro",
}

// Now returns the current time in CommitTimezone, the moment used to
// stamp every commit this module creates.
func Now() time.Time {
	return time.Now().In(CommitTimezone)
}
