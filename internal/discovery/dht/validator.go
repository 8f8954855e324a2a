package dht

import (
	"errors"
	"fmt"
	"strings"

	record "github.com/libp2p/go-libp2p-record"
)

// ServiceValidator service 命名空间的记录验证器
//
// 记录必须可解码，且键必须等于记录中服务名推导出的 RecordKey。
// 多个有效记录冲突时选择 Published 最新的一个。
type ServiceValidator struct{}

var _ record.Validator = ServiceValidator{}

// Validate 校验单条记录
func (ServiceValidator) Validate(key string, value []byte) error {
	if !strings.HasPrefix(key, "/"+RecordNamespace+"/") {
		return fmt.Errorf("%w: key %q outside namespace", ErrInvalidRecord, key)
	}
	if len(value) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidRecord)
	}
	r, err := DecodeServiceRecord(value)
	if err != nil {
		return err
	}
	if want := NewServiceKey(r.Service).RecordKey(); want != key {
		return fmt.Errorf("%w: key does not match service %q", ErrInvalidRecord, r.Service)
	}
	return nil
}

// Select 选择最新的有效记录
func (v ServiceValidator) Select(key string, values [][]byte) (int, error) {
	best := -1
	var newest int64
	for i, val := range values {
		if v.Validate(key, val) != nil {
			continue
		}
		r, _ := DecodeServiceRecord(val)
		if best < 0 || r.Published > newest {
			best, newest = i, r.Published
		}
	}
	if best < 0 {
		return 0, errors.New("dht: no valid service record to select")
	}
	return best, nil
}
