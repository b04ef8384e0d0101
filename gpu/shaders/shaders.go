package shaders

import (
	_ "embed"
)

//go:embed reset.wgsl
var ResetWGSL string

//go:embed cull.wgsl
var CullWGSL string

//go:embed sortkey.wgsl
var SortKeyWGSL string

//go:embed radix.wgsl
var RadixWGSL string

//go:embed indirect.wgsl
var IndirectWGSL string

//go:embed hiz_downsample.wgsl
var HiZDownsampleWGSL string

//go:embed overlay.wgsl
var OverlayWGSL string
