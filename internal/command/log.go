package command

import "github.com/dep2p/go-p2pnode/internal/util/logger"

var log = logger.Logger("command")
