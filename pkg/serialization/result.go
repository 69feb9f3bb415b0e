package serialization

import "fmt"

// LoadResult 是加载 chunk 的结果码
// 加载失败从不返回 error，调用方必须对每个结果码做分支
type LoadResult int

const (
	LoadSuccess LoadResult = iota
	LoadOpenFileFail
	LoadBadArchive
	LoadCorruptHeader
	LoadIncorrectFileSize
	LoadUnsupportedStorage
	LoadMissingHashInfo
	LoadSerializationError
	LoadDecompressFailure
	LoadHashCheckFailed
	LoadAborted
)

var loadResultNames = [...]string{
	LoadSuccess:            "Success",
	LoadOpenFileFail:       "OpenFileFail",
	LoadBadArchive:         "BadArchive",
	LoadCorruptHeader:      "CorruptHeader",
	LoadIncorrectFileSize:  "IncorrectFileSize",
	LoadUnsupportedStorage: "UnsupportedStorage",
	LoadMissingHashInfo:    "MissingHashInfo",
	LoadSerializationError: "SerializationError",
	LoadDecompressFailure:  "DecompressFailure",
	LoadHashCheckFailed:    "HashCheckFailed",
	LoadAborted:            "Aborted",
}

func (r LoadResult) String() string {
	if r >= 0 && int(r) < len(loadResultNames) {
		return loadResultNames[r]
	}
	return fmt.Sprintf("LoadResult(%d)", int(r))
}

// SaveResult 是保存 chunk 的结果码
type SaveResult int

const (
	SaveSuccess SaveResult = iota
	SaveFileCreateFail
	SaveBadArchive
	SaveSerializationError
)

var saveResultNames = [...]string{
	SaveSuccess:            "Success",
	SaveFileCreateFail:     "FileCreateFail",
	SaveBadArchive:         "BadArchive",
	SaveSerializationError: "SerializationError",
}

func (r SaveResult) String() string {
	if r >= 0 && int(r) < len(saveResultNames) {
		return saveResultNames[r]
	}
	return fmt.Sprintf("SaveResult(%d)", int(r))
}
