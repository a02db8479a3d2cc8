package resolve

import (
	"context"
	"fmt"

	"rfqcrm/internal"
	"rfqcrm/internal/util"
)

// combinedNames lists the flat "office + division" spellings that earlier
// ingestions produced, already normalized.
func combinedNames(office, division string) []string {
	seps := []string{" ", "  ", "-", " - ", ""}
	out := make([]string, 0, len(seps)*2)
	seen := map[string]bool{}
	for _, sep := range seps {
		for _, name := range []string{office + sep + division, division + sep + office} {
			norm := util.NormalizeName(name)
			if !seen[norm] {
				seen[norm] = true
				out = append(out, norm)
			}
		}
	}
	return out
}

// ResolveAccount maps a buying office and its division onto a two-level
// account hierarchy, reusing what exists:
//
//  1. parent = account named office
//  2. parent and child found: child
//  3. a top-level account named office+division: that account, with a warning
//  4. parent without child: new child under parent
//  5. nothing found: new parent, plus a child when division differs
//  6. no parent but a top-level account named division: that account
//
// When only one of office and division is known, it serves as both.
func (r *Resolver) ResolveAccount(ctx context.Context, repo internal.Repository, office, division, address string, res *Resolution) (*int64, error) {
	office, division = util.CollapseSpaces(office), util.CollapseSpaces(division)
	if office == "" && division == "" {
		return nil, nil
	}
	if office == "" {
		office = division
	}
	if division == "" {
		division = office
	}
	officeNorm, divisionNorm := util.NormalizeName(office), util.NormalizeName(division)
	sameEntity := officeNorm == divisionNorm

	parent, err := findRootAccount(ctx, repo, officeNorm)
	if err != nil {
		return nil, fmt.Errorf("%w: find account %q: %w", ErrResolution, office, err)
	}

	if parent != nil {
		if sameEntity {
			res.record(internal.KindAccount, parent.ID, parent.Name, false)
			return &parent.ID, nil
		}
		child, err := repo.FindChildAccount(ctx, parent.ID, divisionNorm)
		if err != nil {
			return nil, fmt.Errorf("%w: find division %q of %q: %w", ErrResolution, division, office, err)
		}
		if child != nil {
			res.record(internal.KindAccount, parent.ID, parent.Name, false)
			res.record(internal.KindAccount, child.ID, child.Name, false)
			return &child.ID, nil
		}
	}

	if !sameEntity {
		for _, combined := range combinedNames(office, division) {
			acc, err := repo.FindAccountByNormalizedName(ctx, combined)
			if err != nil {
				return nil, fmt.Errorf("%w: find combined account %q: %w", ErrResolution, combined, err)
			}
			if acc == nil || acc.IsDivision() {
				continue
			}
			warning := fmt.Sprintf("combined account name %q (id %d) used for office %q / division %q", acc.Name, acc.ID, office, division)
			r.logger.Warn("combined account name in use", "account_id", acc.ID, "name", acc.Name)
			res.Warnings = append(res.Warnings, warning)
			res.record(internal.KindAccount, acc.ID, acc.Name, false)
			return &acc.ID, nil
		}
	}

	if parent != nil {
		res.record(internal.KindAccount, parent.ID, parent.Name, false)
		childID, err := r.createAccount(ctx, repo, division, &parent.ID, "Division of "+parent.Name, address, res)
		if err != nil {
			return nil, err
		}
		return &childID, nil
	}

	if !sameEntity {
		orphan, err := findRootAccount(ctx, repo, divisionNorm)
		if err != nil {
			return nil, fmt.Errorf("%w: find account %q: %w", ErrResolution, division, err)
		}
		if orphan != nil {
			r.logger.Debug("division account without parent reused", "account_id", orphan.ID, "name", orphan.Name)
			res.record(internal.KindAccount, orphan.ID, orphan.Name, false)
			return &orphan.ID, nil
		}
	}

	parentID, err := r.createAccount(ctx, repo, office, nil, "Buying office "+office, address, res)
	if err != nil {
		return nil, err
	}
	if sameEntity {
		return &parentID, nil
	}
	childID, err := r.createAccount(ctx, repo, division, &parentID, "Division of "+office, address, res)
	if err != nil {
		return nil, err
	}
	return &childID, nil
}

// findRootAccount returns the top-level account named normalizedName. A
// division of some other office never qualifies.
func findRootAccount(ctx context.Context, repo internal.Repository, normalizedName string) (*internal.Account, error) {
	acc, err := repo.FindAccountByNormalizedName(ctx, normalizedName)
	if err != nil || acc == nil || acc.IsDivision() {
		return nil, err
	}
	return acc, nil
}

func (r *Resolver) createAccount(ctx context.Context, repo internal.Repository, name string, parentID *int64, summary, address string, res *Resolution) (int64, error) {
	id, err := repo.CreateAccount(ctx, internal.Account{
		Name:            name,
		Type:            internal.AccountCustomer,
		ParentAccountID: parentID,
		Summary:         summary,
		BillingAddress:  address,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: create account %q: %w", ErrResolution, name, err)
	}
	r.logger.Info("account created", "id", id, "name", name, "division", parentID != nil)
	res.record(internal.KindAccount, id, name, true)
	return id, nil
}
