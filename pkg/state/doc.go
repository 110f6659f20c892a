// Package state defines persistence-facing contracts for loading and saving
// serialized entity payloads, plus a small repository that turns payloads
// back into entities through an entity.Runtime.
//
// Responsibilities:
//   - Store only loads, saves and deletes a single payload for a single Ref.
//   - Repository resolves the Ref for an entity type, deserializes loaded
//     payloads, checks rules before saving and enforces ETag concurrency.
//   - The entity package remains persistence-agnostic; all storage logic
//     stays behind Store implementations supplied by consumers.
//
// Data flow:
//
//	Store -> Repository.Load -> Runtime.Deserialize -> entity.Entity
//	entity.Entity -> Repository.Save -> Runtime.Serialize -> Store
//
// Deterministic keys:
//
//	Ref.Identifier() provides a canonical storage key of the form
//	`<class identifier>/<key>`, for example `Demo.Person/42`.
package state
