package notes

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// MaxLogChunkSize is the largest file fragment carried by a single LogResponse.
const MaxLogChunkSize = 10_000_000

// LogResponse carries one fragment of one log file. A file larger than the chunk size is sent as a sequence of
// LogResponses sharing FileName, Total, FileSize and FileHash, with Index counting from zero.
type LogResponse struct {
	Header
	Origin
	Location LogLocation
	FileName string
	Index    int32
	Total    int32
	FileSize int64
	FileHash string
	Data     []byte

	// Only set on the sending side.
	content   []byte
	chunkSize int
}

// NewLogResponse prepares content for transfer in chunks of at most chunkSize bytes. The returned note holds the
// first chunk; callers publish it and call Next while HasNext is true.
func NewLogResponse(origin Origin, location LogLocation, fileName string, content []byte, chunkSize int) *LogResponse {
	if chunkSize <= 0 || chunkSize > MaxLogChunkSize {
		chunkSize = MaxLogChunkSize
	}
	total := (len(content) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	r := &LogResponse{
		Header:    newHeader(ResponseType, CmdLog),
		Origin:    origin,
		Location:  location,
		FileName:  fileName,
		Total:     int32(total),
		FileSize:  int64(len(content)),
		FileHash:  FileHash(content),
		content:   content,
		chunkSize: chunkSize,
	}
	r.slice()
	return r
}

func (r *LogResponse) slice() {
	start := int(r.Index) * r.chunkSize
	end := start + r.chunkSize
	if end > len(r.content) {
		end = len(r.content)
	}
	r.Data = r.content[start:end]
}

func (r *LogResponse) HasNext() bool {
	return r.content != nil && r.Index+1 < r.Total
}

func (r *LogResponse) Next() {
	if !r.HasNext() {
		return
	}
	r.Index++
	r.slice()
}

// IsLast is true for the final fragment of a file.
func (r *LogResponse) IsLast() bool {
	return r.Index == r.Total-1
}

// FileHash is the digest used to verify a transferred file.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LogJoiner reassembles the fragments of one file. Fragments must arrive in order.
type LogJoiner struct {
	FileName string
	Total    int32
	FileSize int64
	FileHash string
	next     int32
	buf      bytes.Buffer
}

func NewLogJoiner(first *LogResponse) *LogJoiner {
	return &LogJoiner{
		FileName: first.FileName,
		Total:    first.Total,
		FileSize: first.FileSize,
		FileHash: first.FileHash,
	}
}

// Join appends the fragment and reports whether the file is complete. A complete file is checked against the
// size and digest announced by the sender.
func (j *LogJoiner) Join(chunk *LogResponse) (bool, error) {
	if chunk.FileName != j.FileName || chunk.Total != j.Total {
		return false, errors.Errorf("fragment of %s (%d parts) does not belong to %s (%d parts)",
			chunk.FileName, chunk.Total, j.FileName, j.Total)
	}
	if chunk.Index != j.next {
		return false, errors.Errorf("fragment %d of %s arrived out of order, expected %d", chunk.Index, j.FileName, j.next)
	}
	j.buf.Write(chunk.Data)
	j.next++
	if j.next < j.Total {
		return false, nil
	}
	if int64(j.buf.Len()) != j.FileSize {
		return true, errors.Errorf("file %s has %d bytes, expected %d", j.FileName, j.buf.Len(), j.FileSize)
	}
	if j.FileHash != "" && FileHash(j.buf.Bytes()) != j.FileHash {
		return true, errors.Errorf("file %s failed verification", j.FileName)
	}
	return true, nil
}

// Received is the number of fragments joined so far.
func (j *LogJoiner) Received() int32 {
	return j.next
}

func (j *LogJoiner) Bytes() []byte {
	return j.buf.Bytes()
}

func (j *LogJoiner) String() string {
	return fmt.Sprintf("%s [%d/%d]", j.FileName, j.next, j.Total)
}
