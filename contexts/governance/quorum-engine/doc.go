// Package quorumengine implements the quorum engine inside the governance
// context.
//
// The module owns governance store lifecycle (create/replace-self/relinquish),
// proposal orchestration (propose/vote/retract/delete/execute), quorum
// evaluation against the live voter set at execution time, and governance
// event production/consumption through outbox-backed workers. It keeps
// business rules in application/domain layers and isolates infrastructure
// concerns behind ports and adapters.
package quorumengine
