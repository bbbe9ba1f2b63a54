package dialog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cloudwego/eino/components/tool"
	"github.com/tailscale/hujson"
)

// Skill describes one assistant persona: its system prompts per language,
// its bound tool set, and the mapping from escape tool names to the graph
// node that receives control when such a tool is invoked. Skills are
// read-only configuration, constructed once at startup.
type Skill struct {
	Name    string
	Model   string            // provider name; empty uses the registry default
	Prompts map[string]string // language code -> system prompt
	Tools   []tool.InvokableTool
	Escapes map[string]string // escape tool name -> destination node
	// Entry is the hand-off message appended when the skill is entered.
	Entry string
}

// Prompt returns the system prompt for a language, falling back to English.
func (s *Skill) Prompt(language string) string {
	if p, ok := s.Prompts[language]; ok {
		return p
	}
	return s.Prompts["en"]
}

// SkillSet is the full set of configured skills, keyed by name.
type SkillSet map[string]*Skill

// Get returns the named skill.
func (ss SkillSet) Get(name string) (*Skill, error) {
	s, ok := ss[name]
	if !ok {
		return nil, fmt.Errorf("unknown skill %q", name)
	}
	return s, nil
}

const (
	primaryPromptEN = "You are Slingshot, a virtual assistant for Slingshot Financial.  You MUST use the provided tools to route the customers to the appropriate specialist to make payments."
	primaryPromptKR = "슬링샷 금융을 위한 가상 비서 슬링샷입니다. 고객이 적절한 전문가에게 연결될 수 있도록 제공된 도구를 반드시 사용해야 합니다. 고객이 돈을 내겠다는 요구를 하면, ToMakePaymentAssistant 를 사용하십시오. 실제 에이전트와 통화를 하고 싶다고 한다면, transfert_to_live_agent 를 사용하십시오"

	makePaymentPromptEN = `You are Slingshot, a virtual assistant for Slingshot Financial.  You MUST use the provided tools to route the customers to the appropriate specialist to make payments. Your main task is to help customers make payments or note promises to pay. Always maintain a professional tone and stay focussed on the task at hand. Do not discuss any issues outside of the customer's loan with Slingshot Financial. If the customer has not specified a particular date or circumstance [e.g. I need a late payment, schedule a payment, or I need some more time], offer to pay the total due amount first: "Would you like to pay the total of $300 today?". If they have mentioned a particular condition, work with the customer to set a payment date and amount. You MUST call validate_payment_amount_date tool once you have a payment date and amount. Schedule only one payment at a time. Use CompleteOrEscalate if the customer wants to do anything else other than make a one-time payment. Be empathetic and patient throughout`
	makePaymentPromptKR = `슬링샷 금융을 위한 가상 비서 슬링샷입니다. 고객이 적절한 전문가에게 연결될 수 있도록 제공된 도구를 반드시 사용해야 합니다. 주요 업무는 고객이 결제를 진행하거나 결제 약속을 기록하도록 돕는 것입니다. 항상 전문적인 어조를 유지하며, 주어진 업무에 집중해야 합니다. 슬링샷 금융과 관련된 대출 이외의 문제에 대해 논의하지 마십시오. 고객이 특정 날짜나 상황을 명시하지 않은 경우 [예: 연체 결제 요청, 결제 일정 예약, 시간이 더 필요함], 우선 총 납부 금액 결제를 제안하십시오. 예: "오늘 총 10만원을 결제하시겠습니까?" 고객이 특정 조건을 언급한 경우, 고객과 협력하여 결제 날짜와 금액을 설정하십시오.  결제 날짜와 금액을 확인한 후 반드시 validate_payment_amount_date 도구를 호출해야 합니다. 한 번에 하나의 결제만 예약하십시오. 고객이 일회성 결제 이외의 다른 요청을 하는 경우, CompleteOrEscalate를 사용하십시오. 항상 공감하고 인내심을 갖고 대응하십시오.`
)

// DefaultSkills builds the built-in payment-collection skill set.
func DefaultSkills() SkillSet {
	primary := &Skill{
		Name: PrimarySkill,
		Prompts: map[string]string{
			"en": primaryPromptEN,
			"kr": primaryPromptKR,
		},
		Tools: []tool.InvokableTool{
			newTransferToLiveAgentTool(),
			newToMakePaymentAssistantTool(),
		},
		Escapes: map[string]string{
			ToolToMakePaymentAssistant: NodeEnterMakePayment,
		},
	}

	makePayment := &Skill{
		Name: SkillMakePayment,
		Prompts: map[string]string{
			"en": makePaymentPromptEN,
			"kr": makePaymentPromptKR,
		},
		Tools: []tool.InvokableTool{
			newValidatePaymentTool(),
			newCompleteOrEscalateTool(),
		},
		Escapes: map[string]string{
			ToolCompleteOrEscalate: NodePopSkill,
		},
		Entry: "The conversation has been routed to the Make Payment Assistant. Please reflect on the past conversation.",
	}

	return SkillSet{
		primary.Name:     primary,
		makePayment.Name: makePayment,
	}
}

// skillOverride is one JSONC skill definition file. Prompt and model
// overrides are merged over the built-in skill of the same name.
type skillOverride struct {
	Skill   string            `json:"skill"`
	Model   string            `json:"model,omitempty"`
	Prompts map[string]string `json:"prompts,omitempty"`
}

// LoadOverrides discovers JSONC skill files under dirs matching the given
// doublestar patterns and merges them into the set. Missing directories are
// skipped; an override naming an unknown skill is a configuration error.
func (ss SkillSet) LoadOverrides(dirs, patterns []string) error {
	for _, dir := range dirs {
		root := os.DirFS(dir)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		for _, pattern := range patterns {
			matches, err := doublestar.Glob(root, pattern)
			if err != nil {
				return fmt.Errorf("skill pattern %q: %w", pattern, err)
			}
			for _, match := range matches {
				if err := ss.applyOverrideFile(root, dir, match); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (ss SkillSet) applyOverrideFile(root fs.FS, dir, name string) error {
	data, err := fs.ReadFile(root, name)
	if err != nil {
		return fmt.Errorf("read skill file %s: %w", filepath.Join(dir, name), err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parse skill file %s: %w", filepath.Join(dir, name), err)
	}

	var ov skillOverride
	if err := json.Unmarshal(std, &ov); err != nil {
		return fmt.Errorf("parse skill file %s: %w", filepath.Join(dir, name), err)
	}

	if ov.Skill == "" {
		return fmt.Errorf("skill file %s: missing skill name", filepath.Join(dir, name))
	}
	skill, ok := ss[ov.Skill]
	if !ok {
		return fmt.Errorf("skill file %s: unknown skill %q", filepath.Join(dir, name), ov.Skill)
	}

	if ov.Model != "" {
		skill.Model = ov.Model
	}
	for lang, prompt := range ov.Prompts {
		if prompt != "" {
			skill.Prompts[lang] = prompt
		}
	}
	return nil
}
