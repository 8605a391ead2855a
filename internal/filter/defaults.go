package filter

// VolumeMetadata lists bookkeeping entries operating systems leave on
// removable media. They are tied to the volume they were created on and are
// excluded unless disabled.
var VolumeMetadata = []string{
	"/.Trashes/",
	"/.Spotlight-V100/",
	"/.fseventsd/",
	"/.TemporaryItems/",
	"/System Volume Information/",
	"/$RECYCLE.BIN/",
	"/lost+found/",
	".DS_Store",
	"._*",
	".*.????????.ferry-tmp",
}

// AddVolumeMetadata appends exclude rules for VolumeMetadata.
func (r *Rules) AddVolumeMetadata() {
	for _, p := range VolumeMetadata {
		if err := r.Add(Exclude, p); err != nil {
			panic(err) // patterns are constant
		}
	}
}
