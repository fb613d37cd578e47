package domain

import "testing"

func TestProfileKeyNormalizesCase(t *testing.T) {
	a := ProfileKey(PlatformInstagram, "MariaLima")
	b := ProfileKey(PlatformInstagram, " marialima ")
	if a != b {
		t.Fatalf("ожидали одинаковый ключ, получили %q и %q", a, b)
	}
	if a != "instagram:marialima" {
		t.Fatalf("неверный формат ключа: %q", a)
	}
}

func TestProfileKeyDistinguishesPlatforms(t *testing.T) {
	if ProfileKey(PlatformTikTok, "user") == ProfileKey(PlatformYouTube, "user") {
		t.Fatal("ключи разных площадок не должны совпадать")
	}
}

func TestEnforceRejectsOnSingleFalseCriterion(t *testing.T) {
	v := ScreeningVerdict{
		AgeOK:             true,
		TargetBodyType:    true,
		TargetClass:       true,
		TargetNationality: false,
		IsRealPerson:      true,
		Approved:          true,
		Confidence:        100,
	}
	if got := v.Enforce(); got.Approved {
		t.Fatal("ожидали отклонение при одном ложном критерии, даже с уверенностью 100")
	}
}

func TestEnforceKeepsModelRejection(t *testing.T) {
	v := ScreeningVerdict{
		AgeOK:             true,
		TargetBodyType:    true,
		TargetClass:       true,
		TargetNationality: true,
		IsRealPerson:      true,
		Approved:          false,
	}
	if got := v.Enforce(); got.Approved {
		t.Fatal("Enforce не должен одобрять отклонённый моделью профиль")
	}
}
