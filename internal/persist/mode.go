package persist

// Mode selects which sinks are active for a crawl.
type Mode struct {
	// Content enables mirroring response bodies to disk.
	Content bool
	// Links enables appending fetched URLs to the link log.
	Links bool
}

// ModeFor derives the active sinks from the two user-facing flags.
// Content is saved unless only links were requested; links are logged
// when only links were requested or when both were.
func ModeFor(onlyLinks, alsoSaveLinks bool) Mode {
	return Mode{
		Content: !onlyLinks || alsoSaveLinks,
		Links:   onlyLinks || alsoSaveLinks,
	}
}
