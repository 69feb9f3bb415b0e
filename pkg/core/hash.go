package core

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc64"
	"math/bits"

	"chunkvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// rollingHashTable 就是反射形式的 CRC-64/ECMA 表 (poly 0xC96C5795D7870F42)
// 只读，init 时生成一次
var rollingHashTable = crc64.MakeTable(crc64.ECMA)

// RollingPoly64 计算整块数据的 64 位 rolling hash
// 每个字节: h = rotl(h, 1) ^ T[b]
func RollingPoly64(data []byte) uint64 {
	var h uint64
	for _, b := range data {
		h = bits.RotateLeft64(h, 1) ^ rollingHashTable[b]
	}
	return h
}

// rollingDigest 是 RollingPoly64 的 hash.Hash64 形式，方便和 io.MultiWriter 组合
type rollingDigest struct {
	h uint64
}

// NewRollingPoly64 返回一个流式的 rolling hash 计算器
// 多次 Write 的结果等于对拼接后的数据调用 RollingPoly64
func NewRollingPoly64() hash.Hash64 { return &rollingDigest{} }

func (d *rollingDigest) Write(p []byte) (int, error) {
	h := d.h
	for _, b := range p {
		h = bits.RotateLeft64(h, 1) ^ rollingHashTable[b]
	}
	d.h = h
	return len(p), nil
}

func (d *rollingDigest) Sum(in []byte) []byte {
	s := d.h
	return append(in, byte(s>>56), byte(s>>48), byte(s>>40), byte(s>>32), byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (d *rollingDigest) Reset()         { d.h = 0 }
func (d *rollingDigest) Size() int      { return 8 }
func (d *rollingDigest) BlockSize() int { return 1 }
func (d *rollingDigest) Sum64() uint64  { return d.h }

// Sha1 计算 payload 的 SHA1
func Sha1(data []byte) types.SHAHash {
	return types.SHAHash(sha1.Sum(data))
}

// 定义符合 DAG-CBOR 规范的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,
	// 3. 时间格式化为 Unix 整数
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义符合 DAG-CBOR 规范的解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// recipe 可能有几十万个 chunk，数组上限放宽
	MaxArrayElements: 4 * 1024 * 1024,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	// --- 规范性配置 ---
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash 和序列化数据
func CalculateHash(v any) (string, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}

	hashBytes := sha256.Sum256(data)
	return hex.EncodeToString(hashBytes[:]), data, nil
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
