package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// OperationKey returns the key holding a bulk operation's JSON status document.
func (r *CacheKeyStruct) OperationKey(operationID string) string {
	return fmt.Sprintf("bulk:operation:%s", operationID)
}

// OperationIndexKey returns the sorted set of operation IDs scored by creation time.
func (r *CacheKeyStruct) OperationIndexKey() string {
	return "bulk:operations"
}

// OperationEventsChannel returns the Pub/Sub channel for an operation's progress events.
func (r *CacheKeyStruct) OperationEventsChannel(operationID string) string {
	return fmt.Sprintf("bulk:operation:%s:events", operationID)
}

var CacheKey = NewCacheKeyStruct()
