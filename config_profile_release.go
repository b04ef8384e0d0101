//go:build !devparity

package drawcull

// autoProfile is what ProfileAuto resolves to in a default build.
const autoProfile = ProfileShippingFast
