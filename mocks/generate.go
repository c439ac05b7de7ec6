package mocks

//go:generate mockgen -destination=./mock_connector.go -package=mocks github.com/rxtech-lab/argo-fleet/internal/connector Connector
//go:generate mockgen -destination=./mock_storage.go -package=mocks github.com/rxtech-lab/argo-fleet/internal/storage AgentStore,PositionStore
//go:generate mockgen -destination=./mock_advisor.go -package=mocks github.com/rxtech-lab/argo-fleet/internal/advisory Advisor
