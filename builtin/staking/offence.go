// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package staking

import (
	"github.com/stakemesh/stakemesh/builtin/staking/slashing"
	"github.com/stakemesh/stakemesh/mesh"
)

// OffenceDetails names an offender and the fraction of its exposure the
// offence costs.
type OffenceDetails struct {
	Offender  mesh.AccountID
	Fraction  mesh.Perbill
	Reporters []mesh.AccountID
}

// OldSlashingReportDiscarded is emitted for offences in sessions older than
// the bonding window.
type OldSlashingReportDiscarded struct {
	Session mesh.SessionIndex
}

// ReportOffence slashes offenders for misbehaviour in session. The slash is
// measured against the exposure the offender had in the era of session.
func (s *Staking) ReportOffence(offenders []OffenceDetails, session mesh.SessionIndex) error {
	slashEra, ok, err := s.clock.EraForSession(session)
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug("discarding old offence", "session", session)
		return s.events.Emit("OldSlashingReportDiscarded", &OldSlashingReportDiscarded{session})
	}
	current, err := s.clock.Current()
	if err != nil {
		return err
	}
	invulnerables, err := s.invulnerables.Get()
	if err != nil {
		return err
	}

	offences := make([]slashing.Offence, 0, len(offenders))
	for _, o := range offenders {
		exposure, found, err := s.erasStakers.Find(eraKey(slashEra, o.Offender))
		if err != nil {
			return err
		}
		if !found {
			// not elected in that era
			continue
		}
		offences = append(offences, slashing.Offence{
			Offender:  o.Offender,
			Exposure:  exposure,
			Fraction:  o.Fraction,
			Reporters: o.Reporters,
		})
	}
	if len(offences) == 0 {
		return nil
	}
	logger.Info("offences reported", "era", slashEra, "count", len(offences))
	return s.slasher.Report(offences, slashEra, current, s.clock.WindowStart(current), invulnerables)
}
