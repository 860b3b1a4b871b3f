package razel

import (
	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// Public aliases for the internal types that appear in this package's
// API. They are identical to the internal types; no conversion is needed.

type CanonicalRepo = label.CanonicalRepo
type ApparentRepo = label.ApparentRepo
type Label = label.CanonicalLabel
type Module = bzlmod.Module
type BazelDep = bzlmod.BazelDep
type Override = bzlmod.Override
type File = files.File
type FileStore = files.Store
type Digest = files.Digest
