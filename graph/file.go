package graph

import "path"

// File is a file on a host.
type File struct {
	key      NodeKey
	assetID  string
	hostname string
	filePath string
	fileName string
	state    FileState
	stamps   lifecycle
}

func (f *File) Kind() Kind           { return KindFile }
func (f *File) Key() NodeKey         { return f.key }
func (f *File) State() string        { return f.state.String() }
func (f *File) Timestamp() uint64    { return f.stamps.at(f.state.phase()) }
func (f *File) FileState() FileState { return f.state }
func (f *File) FilePath() string     { return f.filePath }
func (f *File) FileName() string     { return f.fileName }
func (f *File) Hostname() string     { return f.hostname }

func (f *File) Properties() map[string]any {
	props := map[string]any{"file_path": f.filePath}
	putHost(props, f.assetID, f.hostname)
	if f.fileName != "" {
		props["file_name"] = f.fileName
	}
	f.stamps.put(props, fileStamps)
	return props
}

// FileBuilder stages the fields of a File.
type FileBuilder struct {
	f   File
	set fieldSet
}

func NewFileBuilder() *FileBuilder { return &FileBuilder{} }

func (b *FileBuilder) AssetID(v string) *FileBuilder {
	b.f.assetID = v
	b.set |= fAssetID
	return b
}

func (b *FileBuilder) Hostname(v string) *FileBuilder {
	b.f.hostname = v
	b.set |= fHostname
	return b
}

func (b *FileBuilder) FilePath(v string) *FileBuilder {
	b.f.filePath = v
	b.set |= fFilePath
	return b
}

func (b *FileBuilder) FileName(v string) *FileBuilder {
	b.f.fileName = v
	b.set |= fFileName
	return b
}

func (b *FileBuilder) State(v FileState) *FileBuilder {
	b.f.state = v
	b.set |= fState
	return b
}

func (b *FileBuilder) CreatedTimestamp(v uint64) *FileBuilder {
	b.f.stamps.created = v
	b.set |= fCreatedTS
	return b
}

func (b *FileBuilder) LastSeenTimestamp(v uint64) *FileBuilder {
	b.f.stamps.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *FileBuilder) DeletedTimestamp(v uint64) *FileBuilder {
	b.f.stamps.ended = v
	b.set |= fEndedTS
	return b
}

// Build validates the staged fields. When no file name was set it is taken
// from the last element of the path.
func (b *FileBuilder) Build() (*File, error) {
	c := checklist{kind: KindFile}
	c.require("hostname", hostKey(b.f.assetID, b.f.hostname) != "")
	c.require("state", b.set.has(fState))
	c.require("file_path", b.set.has(fFilePath) && b.f.filePath != "")
	c.reject("state", b.set.has(fState) && b.f.state.phase() == phaseNone)
	c.requireStamp(b.f.state.phase(), b.set, fileStamps)
	if err := c.err(); err != nil {
		return nil, err
	}

	f := b.f
	if f.fileName == "" {
		f.fileName = baseName(f.filePath)
	}
	f.key = deriveKey(KindFile,
		str("host", hostKey(f.assetID, f.hostname)),
		str("file_path", f.filePath),
	)
	return &f, nil
}

// baseName handles both windows and posix separators.
func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '\\' {
			return p[i+1:]
		}
		if p[i] == '/' {
			break
		}
	}
	return path.Base(p)
}
