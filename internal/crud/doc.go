// Package crud turns query descriptors into executable document-store queries
// and runs the create, read, update, replace and delete flows of one route.
//
// ARCHITECTURE:
//
//	Descriptor ─┬─ Normalize ───────────┐
//	            ├─ ResolveProjection ───┼─ Assemble ─→ Store ─→ shape result
//	            └─ relation resolver ───┘
//
// A Service is bound to one route: the route options name the entity, and the
// schema graph describes its fields and relations. Both are read-only after
// construction, so one Service is shared by all requests on the route.
//
// PRECEDENCE:
//
// Filters merge in three tiers, later tiers replacing a field's whole
// condition: caller filter, static route filter, route params. Writes merge
// in overlays, later overlays winning per key:
//
//	update, default:        existing ⊕ payload ⊕ params ⊕ authPersist
//	update, params override: existing ⊕ params ⊕ payload ⊕ authPersist
//	replace, default:        payload ⊕ params ⊕ authPersist
//	replace, params override: params ⊕ payload ⊕ authPersist
//
// authPersist is always applied last. Primary keys are never changed by a
// write.
//
// ERRORS:
//
// Client mistakes surface as *Error with CodeInvalidInput or CodeNotFound.
// Store errors are returned exactly as the store produced them; nothing is
// retried or replaced with a default.
package crud
