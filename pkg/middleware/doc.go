// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including token authentication,
// rate limiting (per-user and distributed), quota enforcement, and organization context.
//
// # Middleware Components
//
// AuthMiddleware: Token-based authentication
//
//	router.Use(middleware.NewAuthMiddleware(tokenManager, false).Handler)
//	// Extracts Bearer token, validates, adds AuthContext to request
//
// RequireScope: Scope gate for a route subtree
//
//	auditRouter.Use(middleware.RequireScope(auth.ScopeAuditRead))
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
//
// QuotaCheckMiddleware: Organization quota enforcement
//
//	router.Use(middleware.QuotaCheckMiddleware(orgService, "form"))
//
// OrgContextMiddleware: Extract org from URL
//
//	router.Use(middleware.OrgContextMiddleware(orgService))
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
// Per-Bot: 5000 req/min, 100 burst
//
// # Related Packages
//
//   - pkg/auth: Token validation
//   - pkg/orgs: Quota checking
//   - pkg/access: Per-form permission checking
package middleware
