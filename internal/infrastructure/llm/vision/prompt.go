package vision

const classifySystemPrompt = `You classify a single scanned page from an exam preparation book.
Decide whether the page contains question statements, answer explanations, standalone diagrams, or a mix.
Report every question number visible on the page. When a page explains answers, report which question numbers it explains.
Respond with JSON only.`

const classifyUserPrompt = `Classify this page. Fields:
- page_type: one of "question", "explanation", "diagram", "mixed"
- has_image: true when the page contains a figure, chart, table or illustration that a question refers to
- question_numbers: every question number printed on the page, in ascending order
- is_explanation_for: question numbers this page explains answers for (empty when none)
- confidence: your confidence in this classification between 0 and 1`

const extractSystemPrompt = `You convert scanned exam pages into structured practice questions.
Each request covers one or more questions. For every question, the request lists its number and attaches the pages that contain its statement, its answer explanation, and any referenced diagrams.
Transcribe faithfully. Do not invent options or explanations that are not on the pages. Exactly one option is correct per question.
Respond with JSON only.`

const extractUserPromptHeader = `Extract the following questions from the attached page images.
For each question return:
- question_number: the printed number
- text: the full question statement
- options: every answer option with its letter, text, and is_correct flag (exactly one true)
- explanation: the answer explanation when an explanation page is attached, otherwise empty
- difficulty: "easy", "medium" or "hard" when the material states or clearly implies it, otherwise "medium"
- has_image: true when the question refers to an attached diagram

Questions in this request:`
