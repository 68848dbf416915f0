// Package reference loads the single amplicon reference sequence amplseq
// aligns against. Only the first record of a FASTA file is read, so
// there is no index to build and no multi-sequence lookup API to keep.
package reference

import (
	"bufio"
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/heathsc/amplseq/internal/ioutil"
)

// Reference is the amplicon reference sequence: its FASTA header name and
// its bases as read from file (case preserved; only trailing spaces, tabs
// and carriage returns of each line are trimmed).
type Reference struct {
	Name string
	Seq  []byte
}

// Len returns the number of bases in the reference.
func (r *Reference) Len() int { return len(r.Seq) }

// Load reads the first FASTA record from path and returns it. A file
// lacking any '>' header, or one that is empty, is an error: amplseq
// always needs exactly one reference sequence to align against.
func Load(ctx context.Context, path string) (*Reference, error) {
	rc, err := ioutil.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "reference")
	}
	defer rc.Close(ctx)

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var ref *Reference
	var seq strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if ref != nil {
				// Only the first record matters; stop here.
				break
			}
			name := line[1:]
			if i := strings.IndexByte(name, ' '); i >= 0 {
				name = name[:i]
			}
			ref = &Reference{Name: name}
			continue
		}
		if ref == nil {
			return nil, errors.Errorf("reference %s: sequence data before header", path)
		}
		seq.WriteString(strings.TrimRight(line, " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reference %s", path)
	}
	if ref == nil {
		return nil, errors.Errorf("reference %s: no FASTA records found", path)
	}
	ref.Seq = []byte(seq.String())
	if len(ref.Seq) == 0 {
		return nil, errors.Errorf("reference %s: record %q has no sequence", path, ref.Name)
	}
	return ref, nil
}
