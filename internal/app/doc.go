// Package app composes the marketplace into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── bounty/         # Bounties, bids, acceptance criteria
//	│   ├── submission/     # Submissions and review outcomes
//	│   ├── dispute/        # Disputes, evidence, resolution outcomes
//	│   ├── ledger/         # Wallets and escrow transactions
//	│   ├── reputation/     # Publisher signals, scores and tiers
//	│   ├── verification/   # Test cases and judged results
//	│   └── fault/          # Error sentinels shared by every layer
//	├── services/           # Business logic (bounty, submission, dispute, ...)
//	├── storage/            # Store interfaces plus memory and postgres backends
//	├── httpapi/            # HTTP handlers, middleware and audit log
//	├── metrics/            # Prometheus instruments
//	├── notify/             # Outbound participant notifications
//	├── runtime/            # Config-driven assembly of a runnable server
//	└── system/             # Background service lifecycle management
//
// # Responsibilities
//
// The app package composes services with their stores and collaborators,
// defines the storage interfaces those services depend on, and carries the
// domain models they share. Business rules live in internal/app/services;
// HTTP concerns live in internal/app/httpapi.
//
// # Dependency Direction
//
//	cmd/bountyd/
//	      │
//	      ▼
//	internal/app/runtime (assembly)
//	      │
//	      ├──► internal/app/ (composition)
//	      │           │
//	      │           ├──► internal/app/services/ (business logic)
//	      │           │
//	      │           └──► internal/app/storage/ (persistence)
//	      │
//	      ├──► internal/auth (identity)
//	      │
//	      └──► internal/config (configuration)
//
// # Example: Adding a New Domain
//
// When adding a new domain (e.g. "payouts"):
//
//  1. Create domain models in internal/app/domain/payouts/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement it in internal/app/storage/postgres/ and memory/
//  4. Create the service in internal/app/services/payouts/service.go
//  5. Wire the service in internal/app/application.go
//  6. Add HTTP handlers in internal/app/httpapi/handler.go
package app
