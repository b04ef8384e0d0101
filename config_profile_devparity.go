//go:build devparity

package drawcull

// autoProfile under -tags devparity: readbacks and safety nets stay enabled.
const autoProfile = ProfileDevParity
