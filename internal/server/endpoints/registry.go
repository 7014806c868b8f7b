package endpoints

import (
	"github.com/jackzampolin/lexshelf/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Work endpoints
		&ListWorksEndpoint{},
		&UploadPagesEndpoint{},
		&SetIndexEndpoint{},
		&FormatEndpoint{},
		&SummarizeEndpoint{},
		&VirtualPagesEndpoint{},
		&StructureEndpoint{},

		// Metrics endpoints
		&MetricsSummaryEndpoint{},

		// Prompt endpoints
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},

		// Settings endpoints
		&SettingsEndpoint{},
	}
}

// HealthCommands returns the endpoints exposed at the top of the api command.
func HealthCommands() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},
		&SettingsEndpoint{},
	}
}

// WorkCommands returns endpoints for work operations.
// This groups work-related commands under the "works" subcommand.
func WorkCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListWorksEndpoint{},
		&UploadPagesEndpoint{},
		&SetIndexEndpoint{},
		&FormatEndpoint{},
		&SummarizeEndpoint{},
		&VirtualPagesEndpoint{},
		&StructureEndpoint{},
	}
}

// MetricsCommands returns endpoints grouped under "metrics".
func MetricsCommands() []api.Endpoint {
	return []api.Endpoint{
		&MetricsSummaryEndpoint{},
	}
}

// PromptCommands returns endpoints grouped under "prompts".
func PromptCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
	}
}
