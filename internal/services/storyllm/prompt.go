package storyllm

import (
	"fmt"

	"storybook/internal/run"
)

// retryReminder is prepended to the prompt on each retry after a malformed
// completion, escalating the instruction the model ignored.
const retryReminder = "REMINDER: Do NOT leave any field empty. Output ONLY the JSON object.\n"

// BuildPrompt renders the storyboard prompt for the supplied inputs. The
// summaries are Korean children's-story prose; the image prompts must be
// English Stable Diffusion tags.
func BuildPrompt(inputs run.Inputs) string {
	return fmt.Sprintf(`Output ONLY valid JSON. No markdown. No comments. No extra text.
User inputs (Korean for story, English for prompt):
- era: %s
- place: %s
- characters: %s
- topic: %s

### 역할
너는 어린이 동화 작가이자 Stable Diffusion 프롬프트 전문가야. 사용자가 주는 이야기를 4개의 장면(Panel)으로 나누고, 각 장면을 위한 요약과 SD 전용 영어 프롬프트를 작성해야 해.

### 규칙
1. **Panel 0 (Subject):** 한글로 이야기의 제목을 지어야 해. (prompt): 제목의 프롬프트는 반드시 영어로 작성해야 해.
2. **Consistency (일관성):** Panel 1~4의 'prompt'에는 반드시 Panel 0에서 정의한 주인공의 특징과 화풍이 포함되어야 해.
3. **SD Prompt 형식:** 반드시 영어로 작성, 문장이 아닌, 쉼표로 구분된 단어(Tag) 위주로 작성해.
4. **언어:** 'summary'는 한국어로 동화체("~했어요, ~했답니다")를 사용해, 'prompt'는 반드시 영어로 작성해.
5. 이야기는 다음과 같이 생성해줘 1)시작배경 2)문제발생 3)해결 시도 4)해결과 마무리

OUTPUT MUST MATCH THIS EXACT SHAPE:
{
  "panels": [
    { "panel": 0, "subject": "동화제목", "prompt": "..." },
    { "panel": 1, "summary": "동화내용", "prompt": "..." },
    { "panel": 2, "summary": "동화내용", "prompt": "..." },
    { "panel": 3, "summary": "동화내용", "prompt": "..." },
    { "panel": 4, "summary": "동화내용", "prompt": "..." }
  ]
}

REMINDER:
- Output JSON only. No leading/trailing text. No markdown.
`, inputs.Era, inputs.Place, inputs.Characters, inputs.Topic)
}
