package common

import "fmt"

var (
	// Index sync keys
	indexPrefix      string = "volops:index"
	indexOutbox      string = "volops:index:outbox"
	indexRebuildLock string = "volops:index:rebuild:lock"
	indexGeneration  string = "volops:index:generation"
	indexEntryLock   string = "volops:index:entry:%d:lock" // opportunity id

	// Gateway keys
	gatewayInitLock string = "volops:gateway:init:%s:lock" // name
)

var Keys = &redisKeys{}

type redisKeys struct{}

// Index sync keys
func (rk *redisKeys) IndexPrefix() string {
	return indexPrefix
}

func (rk *redisKeys) IndexOutbox() string {
	return indexOutbox
}

func (rk *redisKeys) IndexRebuildLock() string {
	return indexRebuildLock
}

func (rk *redisKeys) IndexGeneration() string {
	return indexGeneration
}

func (rk *redisKeys) IndexEntryLock(opportunityID uint) string {
	return fmt.Sprintf(indexEntryLock, opportunityID)
}

// Gateway keys
func (rk *redisKeys) GatewayInitLock(name string) string {
	return fmt.Sprintf(gatewayInitLock, name)
}
