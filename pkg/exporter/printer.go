package exporter

import (
	"fmt"
	"io"
	"text/tabwriter"

	"chunkvault/pkg/core"

	"github.com/dustin/go-humanize"
)

// PrintHeader 打印一个 chunk header，字段顺序和磁盘上一致
func PrintHeader(h core.ChunkHeader, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s (%d)\n", h.Version, uint32(h.Version))
	fmt.Fprintf(tw, "HeaderSize:\t%d\n", h.HeaderSize)
	fmt.Fprintf(tw, "ID:\t%s\n", h.ID)
	fmt.Fprintf(tw, "DataSizeCompressed:\t%d\n", h.DataSizeCompressed)
	fmt.Fprintf(tw, "DataSizeUncompressed:\t%d\n", h.DataSizeUncompressed)
	fmt.Fprintf(tw, "StorageFlags:\t%s\n", storageFlagsString(h.StorageFlags))
	fmt.Fprintf(tw, "HashFlags:\t%s\n", h.HashFlags)
	fmt.Fprintf(tw, "RollingHash:\t%016X\n", h.RollingHash)
	if h.HashFlags.Has(core.HashSha1) {
		fmt.Fprintf(tw, "SHA1:\t%s\n", h.SHAHash)
	}
	return tw.Flush()
}

func storageFlagsString(f core.StorageFlags) string {
	switch {
	case f == core.StorageNone:
		return "None"
	case f.Has(core.StorageCompressed) && f.Has(core.StorageEncrypted):
		return "Compressed|Encrypted"
	case f.Has(core.StorageCompressed):
		return "Compressed"
	case f.Has(core.StorageEncrypted):
		return "Encrypted"
	default:
		return fmt.Sprintf("StorageFlags(%d)", uint8(f))
	}
}

// PrintRecipe 打印 recipe 元数据，verbose 时列出每个 chunk (像 git ls-tree)
func PrintRecipe(r *core.FileRecipe, verbose bool, w io.Writer) error {
	fmt.Fprintf(w, "Recipe:       %s\n", r.ID())
	fmt.Fprintf(w, "FeatureLevel: %s\n", r.FeatureLevel)
	fmt.Fprintf(w, "TotalSize:    %s (%d bytes)\n", humanize.IBytes(uint64(r.TotalSize)), r.TotalSize)
	fmt.Fprintf(w, "Chunks:       %d\n", len(r.Chunks))
	if !verbose || len(r.Chunks) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "#\tOFFSET\tID\tROLLING\tSIZE\n")
	var offset int64
	for i, c := range r.Chunks {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%016X\t%d\n", i, offset, c.ID, c.RollingHash, c.Size)
		offset += int64(c.Size)
	}
	return tw.Flush()
}
