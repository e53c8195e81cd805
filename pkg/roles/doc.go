// Package roles computes and applies role reconciliation for a subject.
//
// Compute is a pure function from the desired policy and the roles a
// subject currently holds on the remote platform to the minimal Diff that
// brings the two in line. Applying the Diff and computing again yields an
// empty Diff.
//
//	policy, err := table.Policy(ctx)
//	diff := roles.Compute(policy, roles.Subject{HasIdentity: true, CohortID: "2a"}, assigned)
//	if !diff.IsEmpty() {
//		err = platform.ApplyRoleDiff(ctx, subjectID, diff, "role sync")
//	}
package roles
