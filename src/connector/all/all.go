// Package all 注册全部厂商连接器
package all

import (
	_ "github.com/shongo-go/connector/src/connector/adobeconnect"
	_ "github.com/shongo-go/connector/src/connector/ciscomcu"
	_ "github.com/shongo-go/connector/src/connector/ciscotcs"
	_ "github.com/shongo-go/connector/src/connector/clearsea"
	_ "github.com/shongo-go/connector/src/connector/codec"
	_ "github.com/shongo-go/connector/src/connector/freepbx"
	_ "github.com/shongo-go/connector/src/connector/lifesize"
	_ "github.com/shongo-go/connector/src/connector/pexip"
	_ "github.com/shongo-go/connector/src/connector/polycom"
)
