package requester

import (
	"go.uber.org/fx"
)

// Module provides the outbound HTTP dependencies
var Module = fx.Module("requester",
	fx.Provide(
		NewHTTPClient,
		NewHTTPRequester,
		NewUserInfoClientFromConfig,
	),
)
