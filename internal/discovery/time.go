package discovery

import "time"

func nowUnixMilli() int64 { return time.Now().UnixMilli() }
